package auth

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	msgBlank             = "This field may not be blank."
	msgRequired          = "This field is required."
	msgUsernameLowercase = "Username should be all lowercase characters"
	msgUsernameInvalid   = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgUsernameTooLong   = "Ensure this field has no more than 150 characters."
	msgUsernameTaken     = "A user with that username already exists."
	msgPasswordLength    = "Password must contain more than 6 characters"
	msgPasswordTooLong   = "Password must not exceed 72 bytes"
	msgPasswordDigit     = "Password must atleast contain a single number"
	msgPasswordSpecial   = "Password must atleast contain a special Character"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 7
	maxPasswordBytes  = 72 // bcrypt 只接受前 72 字节
	specialCharacters = `!@#$%^&*(),.?":{}|<>`
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// FieldErrors 按字段归集的校验错误，序列化为 {"field": ["message"]}。
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// validateRegistrationInput 区分缺失字段与空字段：缺失报 required，
// 已提供的字段仍按 ValidateRegistration 的规则校验。
func validateRegistrationInput(username, password *string) FieldErrors {
	errs := FieldErrors{}
	if username == nil {
		errs.Add("username", msgRequired)
	} else if msg := validateUsername(*username); msg != "" {
		errs.Add("username", msg)
	}
	if password == nil {
		errs.Add("password", msgRequired)
	} else if msg := validatePassword(*password); msg != "" {
		errs.Add("password", msg)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateRegistration 校验注册参数，全部通过返回 nil。
func ValidateRegistration(username, password string) FieldErrors {
	errs := FieldErrors{}
	if msg := validateUsername(username); msg != "" {
		errs.Add("username", msg)
	}
	if msg := validatePassword(password); msg != "" {
		errs.Add("password", msg)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateUsername(username string) string {
	switch {
	case username == "":
		return msgBlank
	case !isLower(username):
		return msgUsernameLowercase
	case len([]rune(username)) > maxUsernameLength:
		return msgUsernameTooLong
	case !usernamePattern.MatchString(username):
		return msgUsernameInvalid
	}
	return ""
}

// validatePassword 按顺序检查，只报告第一条未满足的规则。
func validatePassword(password string) string {
	switch {
	case password == "":
		return msgBlank
	case len([]rune(password)) < minPasswordLength:
		return msgPasswordLength
	case len(password) > maxPasswordBytes:
		return msgPasswordTooLong
	case !strings.ContainsFunc(password, unicode.IsDigit):
		return msgPasswordDigit
	case !strings.ContainsAny(password, specialCharacters):
		return msgPasswordSpecial
	}
	return ""
}

// isLower 要求至少一个小写字母且没有大写字母，"abc1" 合法，"123" 不合法。
func isLower(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			return false
		}
		if unicode.IsLower(r) {
			cased = true
		}
	}
	return cased
}
