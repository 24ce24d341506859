package isbn

import (
	"errors"
	"testing"
)

func TestValidate_KnownGood(t *testing.T) {
	valid := []string{
		"9780306406157",
		"9781861972712",
		"9780000000002",
	}
	for _, code := range valid {
		if err := Validate(code); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", code, err)
		}
	}
}

func TestValidate_Checksum(t *testing.T) {
	// 与有效样例仅最后一位不同。
	if err := Validate("9780306406158"); !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("expected ErrInvalidChecksum, got %v", err)
	}
}

func TestValidate_Format(t *testing.T) {
	cases := []string{
		"",
		"978030640615",   // 12 位
		"97803064061577", // 14 位
		"978030640615x",  // 非数字
		"9 780306406157", // 含空格且超长
		"97803064-6157",  // 含连字符
	}
	for _, code := range cases {
		if err := Validate(code); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidFormat", code, err)
		}
	}
}

func TestValidate_AllDigitStringsMatchWeightedSum(t *testing.T) {
	// 穷举最后一位，恰好一个校验位成立。
	prefix := "978030640615"
	validCount := 0
	for d := byte('0'); d <= '9'; d++ {
		code := prefix + string(d)
		err := Validate(code)
		switch {
		case err == nil:
			validCount++
		case errors.Is(err, ErrInvalidChecksum):
		default:
			t.Fatalf("Validate(%q) unexpected error %v", code, err)
		}
	}
	if validCount != 1 {
		t.Fatalf("expected exactly 1 valid check digit, got %d", validCount)
	}
}
