// Package datasettest writes small funnel datasets to disk for tests.
package datasettest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vinodismyname/mcpfunnel/config"
)

// Files is the five-user reference dataset keyed by default file name.
//
// Funnel users are [5, 3, 2, 1] with 20% overall conversion. Desktop converts
// at 50% and Mobile at 0%. Users 1, 2 and 5 are new under a 7-day window.
func Files() map[string]string {
	return map[string]string{
		config.DefaultHomeFile:         "user_id,page\n1,home_page\n2,home_page\n3,home_page\n4,home_page\n5,home_page\n",
		config.DefaultSearchFile:       "user_id,page\n2,search_page\n3,search_page\n4,search_page\n",
		config.DefaultPaymentFile:      "user_id,page\n3,payment_page\n4,payment_page\n",
		config.DefaultConfirmationFile: "user_id,page\n4,payment_confirmation_page\n",
		config.DefaultUserFile: "user_id,date,device,sex\n" +
			"1,2015-04-30,Desktop,Female\n" +
			"2,2015-04-29,Mobile,Male\n" +
			"3,2015-01-10,Mobile,Female\n" +
			"4,2015-02-01,Desktop,Male\n" +
			"5,2015-04-28,Mobile,Female\n",
	}
}

// WriteDir writes files into a fresh temporary directory and returns it.
func WriteDir(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}
