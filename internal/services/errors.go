package services

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotMember          = errors.New("user is not a member of this group")
	ErrForbidden          = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTooManyAttempts    = errors.New("too many login attempts, please try again later")
)

// 面向用户的校验提示
const (
	MsgAllFieldsRequired = "All fields are required."
	MsgInvalidRecipient  = "Invalid recipient."
	MsgUserNotFound      = "Could not find user"
	MsgGroupNameTooLong  = "Group name is too long."
	MsgEmptyBody         = "Message body cannot be empty."
	MsgMissingTimestamp  = "Message timestamp is required."
	MsgGenericFailure    = "An error occurred, please try again"
)

// ValidationError 是唯一直接展示给用户的错误类型，发生时不会留下任何持久化状态
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validation(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation 判断 err 是否为 ValidationError，并返回其提示信息
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
