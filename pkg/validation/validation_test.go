package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type toolInput struct {
	Path     string   `validate:"required,dataset_path"`
	Output   string   `validate:"omitempty,report_path"`
	Segments []string `validate:"omitempty,dive,segment_key"`
	Days     int      `validate:"omitempty,min=0,max=3650"`
}

func TestValidateStruct(t *testing.T) {
	cases := []struct {
		name string
		in   toolInput
		want string
	}{
		{"csv dir", toolInput{Path: "/data/funnel"}, ""},
		{"workbook", toolInput{Path: "/data/funnel.XLSX", Output: "/out/r.xlsx"}, ""},
		{"missing path", toolInput{}, "VALIDATION: path is required"},
		{"csv file", toolInput{Path: "/data/home.csv"}, "VALIDATION: path must be a CSV directory or an Excel workbook (.xlsx, .xlsm)"},
		{"bad output", toolInput{Path: "/d", Output: "/out/r.pptx"}, "VALIDATION: output must be an .xlsx file"},
		{"segments", toolInput{Path: "/d", Segments: []string{"Device", "sex", "user_type"}}, ""},
		{"bad segment", toolInput{Path: "/d", Segments: []string{"device", "browser"}}, `UNKNOWN_SEGMENT: "browser"; use device, gender or recency`},
		{"days", toolInput{Path: "/d", Days: 4000}, "VALIDATION: days must satisfy max=3650"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ValidateStruct(tc.in))
		})
	}
}

func TestValidatorIsSingleton(t *testing.T) {
	require.Same(t, Validator(), Validator())
}
