package model

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Code    int         `json:"code"`            // 响应状态码
	Status  string      `json:"status"`          // "success" 或 "failed"
	Message string      `json:"message"`         // 响应消息
	Data    interface{} `json:"data,omitempty"`  // 响应数据
	Error   string      `json:"error,omitempty"` // 错误信息
}

// Success 构造成功响应
func Success(code int, message string, data interface{}) APIResponse {
	return APIResponse{Code: code, Status: "success", Message: message, Data: data}
}

// Failure 构造失败响应
func Failure(code int, message string, err error) APIResponse {
	resp := APIResponse{Code: code, Status: "failed", Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
