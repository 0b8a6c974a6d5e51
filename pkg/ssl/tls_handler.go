package ssl

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// TlsHandler 非 TLS 请求重定向到 https://host:port；反向代理通过 X-Forwarded-Proto 标记 TLS
func TlsHandler(host string, port int) gin.HandlerFunc {
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:     true,
		SSLHost:         host + ":" + strconv.Itoa(port),
		SSLProxyHeaders: map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(c *gin.Context) {
		// Process 已写入重定向响应时直接返回
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	}
}
