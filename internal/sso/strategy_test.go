package sso

import (
	"testing"
)

// TestProfileFromClaims_OpenIDClaims はOpenID Connect標準クレームの正規化を検証する。
func TestProfileFromClaims_OpenIDClaims(t *testing.T) {
	claims := map[string]any{
		"sub":                "g-12345",
		"email":              "taro@example.com",
		"preferred_username": "taro",
		"given_name":         "Taro",
		"family_name":        "Yamada",
		"name":               "Taro Yamada",
		"picture":            "https://cdn.example.com/taro.png",
		"gender":             "male",
		"locale":             "ja",
	}

	p := profileFromClaims(claims)

	if p.Identifier != "g-12345" {
		t.Errorf("Identifier = %q, want %q", p.Identifier, "g-12345")
	}
	if p.Email != "taro@example.com" {
		t.Errorf("Email = %q, want %q", p.Email, "taro@example.com")
	}
	if p.Username != "taro" {
		t.Errorf("Username = %q, want %q", p.Username, "taro")
	}
	if p.NameFirst != "Taro" || p.NameLast != "Yamada" {
		t.Errorf("Name = %q %q, want Taro Yamada", p.NameFirst, p.NameLast)
	}
	if p.NameDisplay != "Taro Yamada" {
		t.Errorf("NameDisplay = %q, want %q", p.NameDisplay, "Taro Yamada")
	}
	if p.Image != "https://cdn.example.com/taro.png" {
		t.Errorf("Image = %q", p.Image)
	}
	if p.Gender != "male" {
		t.Errorf("Gender = %q, want male", p.Gender)
	}
	if p.Language != "ja" {
		t.Errorf("Language = %q, want ja", p.Language)
	}
}

// TestProfileFromClaims_NumericIdentifier は数値識別子が10進文字列に変換されることを検証する。
func TestProfileFromClaims_NumericIdentifier(t *testing.T) {
	claims := map[string]any{
		"id":    float64(9876543),
		"login": "octocat",
	}

	p := profileFromClaims(claims)

	if p.Identifier != "9876543" {
		t.Errorf("Identifier = %q, want %q", p.Identifier, "9876543")
	}
	if p.Username != "octocat" {
		t.Errorf("Username = %q, want %q", p.Username, "octocat")
	}
}

// TestProfileFromClaims_LocaleWithRegion は地域付きロケールから言語部分のみを取ることを検証する。
func TestProfileFromClaims_LocaleWithRegion(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"en-US", "en"},
		{"ja_JP", "ja"},
		{"fr", "fr"},
	}

	for _, tt := range tests {
		p := profileFromClaims(map[string]any{"sub": "x", "locale": tt.locale})
		if p.Language != tt.want {
			t.Errorf("locale %q: Language = %q, want %q", tt.locale, p.Language, tt.want)
		}
	}
}

// TestProfileFromClaims_InvalidGender は列挙集合外の性別が未指定になることを検証する。
func TestProfileFromClaims_InvalidGender(t *testing.T) {
	p := profileFromClaims(map[string]any{"sub": "x", "gender": "unknown"})
	if p.Gender != "" {
		t.Errorf("Gender = %q, want empty", p.Gender)
	}
}

// TestProfileFromClaims_AliasPriority は候補キーの優先順が保たれることを検証する。
func TestProfileFromClaims_AliasPriority(t *testing.T) {
	// subとidの両方がある場合はsubが優先される
	p := profileFromClaims(map[string]any{
		"sub": "primary",
		"id":  "secondary",
	})
	if p.Identifier != "primary" {
		t.Errorf("Identifier = %q, want %q", p.Identifier, "primary")
	}
}

// TestProfileFromClaims_Empty は空のクレームを安全に処理できることを検証する。
func TestProfileFromClaims_Empty(t *testing.T) {
	p := profileFromClaims(map[string]any{})
	if p.Identifier != "" || p.Email != "" {
		t.Errorf("expected empty profile, got %+v", p)
	}
}
