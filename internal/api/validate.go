package api

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/victornm/raindrop/internal/domain"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerValidators sets up gin's validator once per process.
func registerValidators() error {
	registerOnce.Do(func() {
		registerErr = registerOn(binding.Validator.Engine())
	})
	return registerErr
}

// registerOn adds the custom rules to engine and reports fields by their
// json or form names.
func registerOn(engine any) error {
	v, ok := engine.(*validator.Validate)
	if !ok {
		return fmt.Errorf("api: unexpected validator engine %T", engine)
	}

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})

	err := v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		return domain.Difficulty(fl.Field().String()).IsTier()
	})
	if err != nil {
		return fmt.Errorf("api: register tier validation: %w", err)
	}
	return nil
}
