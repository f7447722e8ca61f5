package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	JSONResponseWithFields(c, status, data, message, nil)
}

// JSONResponseWithFields sends the success envelope plus extra top-level fields.
// Envelope keys always win over extra fields with the same name.
func JSONResponseWithFields(c *gin.Context, status int, data any, message string, fields gin.H) {
	body := gin.H{}
	for k, v := range fields {
		body[k] = v
	}
	body["status"] = status
	body["message"] = message
	body["data"] = data
	c.JSON(status, body)
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	JSONErrorWithFields(c, status, err, message, nil)
}

// JSONErrorWithFields sends the error envelope plus extra top-level fields.
func JSONErrorWithFields(c *gin.Context, status int, err error, message string, fields gin.H) {
	body := gin.H{}
	for k, v := range fields {
		body[k] = v
	}
	body["status"] = status
	body["message"] = message
	body["error"] = err.Error()
	c.JSON(status, body)
}
