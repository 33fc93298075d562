package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	v    *validator.Validate
	once sync.Once

	workbookExts = map[string]bool{".xlsx": true, ".xlsm": true}
	segmentKeys  = map[string]bool{"device": true, "gender": true, "sex": true, "recency": true, "user_type": true}
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Custom: dataset is a CSV directory (no extension) or an Excel workbook
		_ = v.RegisterValidation("dataset_path", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return false
			}
			ext := strings.ToLower(filepath.Ext(s))
			return ext == "" || workbookExts[ext]
		})
		// Custom: exported report must be .xlsx
		_ = v.RegisterValidation("report_path", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return s != "" && strings.EqualFold(filepath.Ext(s), ".xlsx")
		})
		_ = v.RegisterValidation("segment_key", func(fl validator.FieldLevel) bool {
			return segmentKeys[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	if err := Validator().Struct(s); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			fe := ve[0]
			field := strings.ToLower(fe.Field())
			switch fe.Tag() {
			case "required":
				return fmt.Sprintf("VALIDATION: %s is required", field)
			case "dataset_path":
				return "VALIDATION: path must be a CSV directory or an Excel workbook (.xlsx, .xlsm)"
			case "report_path":
				return "VALIDATION: output must be an .xlsx file"
			case "segment_key":
				return fmt.Sprintf("UNKNOWN_SEGMENT: %q; use device, gender or recency", fe.Value())
			case "min", "max", "gte", "lte":
				return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
			}
			return fmt.Sprintf("VALIDATION: invalid %s", field)
		}
		return "VALIDATION: invalid inputs"
	}
	return ""
}
