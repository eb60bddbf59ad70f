package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// graphIDsFromQuery accepts graphIds[]=a&graphIds[]=b, graphIds=a,b and
// repeated graphIds=a&graphIds=b.
func graphIDsFromQuery(c *gin.Context) []string {
	var values []string
	values = append(values, c.QueryArray("graphIds[]")...)
	values = append(values, c.QueryArray("graphIds")...)

	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}
