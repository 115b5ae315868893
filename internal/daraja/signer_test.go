package daraja

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestSignDeterministic(t *testing.T) {
	first, err := Sign("174379", "secret", "20240115103000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Sign("174379", "secret", "20240115103000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("signature not deterministic: %q vs %q", first, second)
	}

	want := base64.StdEncoding.EncodeToString([]byte("174379secret20240115103000"))
	if first != want {
		t.Errorf("signature = %q, want %q", first, want)
	}
}

func TestSignVariesWithInputs(t *testing.T) {
	base, _ := Sign("174379", "secret", "20240115103000")

	variants := []struct {
		name      string
		merchant  string
		passkey   string
		timestamp string
	}{
		{"merchant", "600000", "secret", "20240115103000"},
		{"passkey", "174379", "other", "20240115103000"},
		{"timestamp", "174379", "secret", "20240115103001"},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			got, err := Sign(v.merchant, v.passkey, v.timestamp)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == base {
				t.Errorf("signature did not change when %s changed", v.name)
			}
		})
	}
}

func TestSignRejectsEmptyInputs(t *testing.T) {
	cases := [][3]string{
		{"", "secret", "20240115103000"},
		{"174379", "", "20240115103000"},
		{"174379", "secret", ""},
	}
	for _, c := range cases {
		if _, err := Sign(c[0], c[1], c[2]); err == nil {
			t.Errorf("Sign(%q, %q, %q) expected error", c[0], c[1], c[2])
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if got := FormatTimestamp(at); got != "20240115103000" {
		t.Errorf("FormatTimestamp = %q, want 20240115103000", got)
	}
}

func TestNormalizeMSISDN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+254712345678", "254712345678"},
		{"0712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{" 0712 345 678 ", "254712345678"},
	}
	for _, c := range cases {
		if got := NormalizeMSISDN(c.in, "254"); got != c.want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
