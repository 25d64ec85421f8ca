package core

// ValidationKind is the severity of a form check.
type ValidationKind string

const (
	ValidationKindOK      ValidationKind = "OK"
	ValidationKindWarning ValidationKind = "WARNING"
	ValidationKindError   ValidationKind = "ERROR"
)

// FormValidation is the result of checking a single form field.
// Warnings are shown to the user but do not block saving; errors do.
type FormValidation struct {
	Kind    ValidationKind `json:"kind"`
	Message string         `json:"message,omitempty"`
}

func ValidationOK() FormValidation {
	return FormValidation{Kind: ValidationKindOK}
}

func ValidationWarning(message string) FormValidation {
	return FormValidation{Kind: ValidationKindWarning, Message: message}
}

func ValidationError(message string) FormValidation {
	return FormValidation{Kind: ValidationKindError, Message: message}
}

// IsBlocking reports whether the value must be rejected.
func (v FormValidation) IsBlocking() bool {
	return v.Kind == ValidationKindError
}

func (v FormValidation) String() string {
	if v.Message == "" {
		return string(v.Kind)
	}
	return string(v.Kind) + ": " + v.Message
}
