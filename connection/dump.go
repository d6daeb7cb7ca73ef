package connection

import (
	"net/http"
	"net/http/httputil"
)

const redacted = "[REDACTED]"

// Headers never written to the debug log in clear text.
var secretHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

func (c *Client) dumpRequest(req *http.Request) {
	if !c.dump {
		return
	}

	clone := req.Clone(req.Context())
	clone.Header = redactHeader(req.Header)
	dump, err := httputil.DumpRequest(clone, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
		return
	}
	c.logger.Debugf("Request dump: %s", string(dump))
}

func (c *Client) dumpResponse(resp *http.Response) {
	if !c.dump {
		return
	}

	clone := *resp
	clone.Header = redactHeader(resp.Header)
	dump, err := httputil.DumpResponse(&clone, false)
	if err != nil {
		c.logger.Warnf("error while dumping response: %s", err)
		return
	}
	c.logger.Debugf("Response dump: %s", string(dump))
}

func redactHeader(header http.Header) http.Header {
	out := header.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, key := range secretHeaders {
		if out.Get(key) != "" {
			out.Set(key, redacted)
		}
	}
	return out
}
