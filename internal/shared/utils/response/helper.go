package response

import "github.com/gin-gonic/gin"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

func RespondSuccess(c *gin.Context, code int, message string, data interface{}) {
	RespondJSON(c, StatusSuccess, code, message, data, nil)
}

// RespondError writes an error envelope. err is exposed as the errors field
// only when non-nil.
func RespondError(c *gin.Context, code int, message string, err error) {
	var detail interface{}
	if err != nil {
		detail = err.Error()
	}
	RespondJSON(c, StatusError, code, message, nil, detail)
}
