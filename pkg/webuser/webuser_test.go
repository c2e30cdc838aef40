package webuser

import (
	"strings"
	"testing"
)

func TestValidatePassword_Accepted(t *testing.T) {
	for _, pw := range []string{
		"Instalador#2026",
		"DesktopUser#2026",
		"aB3!aB3!aB",
	} {
		if err := ValidatePassword(pw); err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", pw, err)
		}
	}
}

func TestValidatePassword_MissingClasses(t *testing.T) {
	tests := []struct {
		name    string
		pw      string
		mention []string
	}{
		{"too short", "aB3!x", []string{"10 caracteres"}},
		{"no uppercase", "minusculas3!", []string{"mayuscula"}},
		{"no lowercase", "MAYUSCULAS3!", []string{"minuscula"}},
		{"no digit", "SinNumeros!!", []string{"numero"}},
		{"no special", "SinEspecial33", []string{"especial"}},
		{"several missing", "corta", []string{"10 caracteres", "mayuscula", "numero", "especial"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.pw)
			if err == nil {
				t.Fatalf("ValidatePassword(%q) = nil, want error", tt.pw)
			}
			for _, m := range tt.mention {
				if !strings.Contains(err.Error(), m) {
					t.Errorf("error %q does not mention %q", err.Error(), m)
				}
			}
		})
	}
}

func TestValidatePassword_SpecialOnlyWhenNonAlnum(t *testing.T) {
	// An otherwise complete password without a special character fails with
	// exactly that class missing.
	err := ValidatePassword("Abcdefghi12")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "especial") {
		t.Errorf("error %q does not name the missing special class", err.Error())
	}
	if strings.Contains(err.Error(), "mayuscula") || strings.Contains(err.Error(), "minuscula") ||
		strings.Contains(err.Error(), "numero") || strings.Contains(err.Error(), "10 caracteres") {
		t.Errorf("error %q names classes that are present", err.Error())
	}
}

func TestToResponse_OmitsHash(t *testing.T) {
	row := Row{
		ID:               7,
		Username:         "tech01",
		PasswordHash:     "pbkdf2_sha256$100000$x$y",
		PasswordHashType: "pbkdf2_sha256",
		Role:             "viewer",
		IsActive:         true,
	}

	resp := row.ToResponse()
	if resp.ID != 7 || resp.Username != "tech01" || resp.Role != "viewer" || !resp.IsActive {
		t.Errorf("response = %+v", resp)
	}
}
