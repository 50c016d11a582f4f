package errors

/*
	内置常用错误码
*/

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, 500, "Internal error", nil)
	// ErrBadRequest 客户端请求错误
	ErrBadRequest = New(1001, 400, "Invalid request", nil)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, 404, "Not found", nil)
	// ErrGone 资源已失效
	ErrGone = New(1010, 410, "Gone", nil)
)
