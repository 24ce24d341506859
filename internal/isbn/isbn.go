package isbn

import "errors"

// 两类校验错误：格式问题与校验位问题，调用方可据此返回不同的提示。
var (
	ErrInvalidFormat   = errors.New("isbn must be 13 digits")
	ErrInvalidChecksum = errors.New("isbn has invalid checksum")
)

// Validate 校验 13 位 ISBN（EAN-13 加权校验和：1,3,1,3,... 加权后模 10 为 0）。
// 纯函数，无任何 I/O；入库与签发页面链接前都必须先通过该校验。
func Validate(code string) error {
	if len(code) != 13 {
		return ErrInvalidFormat
	}
	sum := 0
	multiplier := 1
	for i := 0; i < len(code); i++ {
		ch := code[i]
		if ch < '0' || ch > '9' {
			return ErrInvalidFormat
		}
		sum += multiplier * int(ch-'0')
		if multiplier == 1 {
			multiplier = 3
		} else {
			multiplier = 1
		}
	}
	if sum%10 != 0 {
		return ErrInvalidChecksum
	}
	return nil
}
