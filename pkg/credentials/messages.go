package credentials

const (
	MsgDisplayName      = "GitLab Personal Access Token"
	MsgTokenRequired    = "token required"
	MsgTokenWrongLength = "wrong length"
	MsgUnacceptableID   = "unacceptable characters"
)
