package utils

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	validate     = validator.New()
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneNoise   = regexp.MustCompile(`[^0-9]`)
)

// HashPassword 使用 bcrypt 对密码进行哈希
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword 验证密码
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// ValidatePassword 验证密码强度（至少8个字符）
func ValidatePassword(password string) bool {
	return len(password) >= 8
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SanitizePhone 只保留数字，开头的 "+" 予以保留
func SanitizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	digits := phoneNoise.ReplaceAllString(phone, "")
	if digits != "" && strings.HasPrefix(phone, "+") {
		return "+" + digits
	}
	return digits
}

// ValidateURL 只接受带主机名的 http/https 链接
func ValidateURL(raw string) bool {
	return validate.Var(raw, "required,http_url") == nil
}

// BuildDate 校验年月日并返回 UTC 日期，诸如 2月30日 的非法日期返回 false
func BuildDate(year, month, day int) (time.Time, bool) {
	if year < 1900 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
