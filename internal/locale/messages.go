// Package locale holds the user-facing message catalog. The product ships in
// Arabic; callers receive prose, never error codes or raw provider text.
package locale

import "wafra.app/internal/api"

// Validation messages, raised before any network call.
const (
	MsgInvalidEmailFormat = "تنسيق البريد الإلكتروني غير صحيح"
	MsgPasswordTooShort   = "كلمة المرور يجب أن تكون 6 أحرف على الأقل"
	MsgTokenRequired      = "رمز التحقق مطلوب"
	MsgTargetRequired     = "رقم الهاتف أو البريد الإلكتروني مطلوب"
	MsgCodeRequired       = "رمز التحقق المكون من أرقام مطلوب"
)

// Remote and local failure messages, keyed by the boundary classification.
const (
	MsgWrongCredentials  = "البريد الإلكتروني أو كلمة المرور غير صحيحة"
	MsgEmailUnconfirmed  = "يرجى تأكيد بريدك الإلكتروني قبل تسجيل الدخول"
	MsgTooManyAttempts   = "محاولات كثيرة جداً، يرجى المحاولة لاحقاً"
	MsgLoginDisabled     = "تسجيل الدخول معطل حالياً"
	MsgDuplicateAccount  = "هذا الحساب مسجل بالفعل"
	MsgWeakPassword      = "كلمة المرور ضعيفة جداً"
	MsgNotFound          = "البيانات المطلوبة غير موجودة"
	MsgNetworkProblem    = "مشكلة في الاتصال بالشبكة، تحقق من اتصالك بالإنترنت"
	MsgOperationTimedOut = "انتهت مهلة العملية، يرجى المحاولة مرة أخرى"
	MsgOperationCanceled = "تم إلغاء العملية"
	MsgServerProblem     = "خطأ في الخادم، يرجى المحاولة لاحقاً"
	MsgGeneric           = "حدث خطأ غير متوقع، يرجى المحاولة مرة أخرى"
)

var kindMessages = map[api.Kind]string{
	api.KindAuthInvalid:      MsgWrongCredentials,
	api.KindEmailUnconfirmed: MsgEmailUnconfirmed,
	api.KindRateLimited:      MsgTooManyAttempts,
	api.KindDisabled:         MsgLoginDisabled,
	api.KindConflict:         MsgDuplicateAccount,
	api.KindWeakPassword:     MsgWeakPassword,
	api.KindNotFound:         MsgNotFound,
	api.KindNetwork:          MsgNetworkProblem,
	api.KindTimeout:          MsgOperationTimedOut,
	api.KindCanceled:         MsgOperationCanceled,
	api.KindServer:           MsgServerProblem,
	api.KindValidation:       MsgGeneric,
	api.KindUnknown:          MsgGeneric,
}

// ForKind maps a boundary classification to its localized message.
func ForKind(kind api.Kind) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return MsgGeneric
}

// ForError maps any error coming back from the remote boundary.
func ForError(err error) string {
	return ForKind(api.KindOf(err))
}
