package sniffer

import (
	"testing"

	apperrors "github.com/kbukum/dirtytables/errors"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModePermanent, false},
		{"permanent", ModePermanent, false},
		{"temporary", ModeTemporary, false},
		{"Permanent", "", true},
		{"TEMP_MODE", "", true},
		{"session", "", true},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err != nil && !apperrors.Is(err, apperrors.ErrCodeConfiguration) {
			t.Errorf("ParseMode(%q) error = %v, want CONFIGURATION_ERROR", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestModeHelpers(t *testing.T) {
	if !ModeTemporary.Temporary() || ModePermanent.Temporary() {
		t.Error("Temporary() mismatch")
	}
	if ModeTemporary.String() != "temporary" {
		t.Errorf("String() = %q", ModeTemporary.String())
	}
}
