package connection

import "context"

// ExecuteRemoteAsync launches a long running server side operation (e.g. copy) and
// returns the monitor URL from the Location header of the 202 Accepted response, unmodified.
// Polling the monitor URL is up to the caller.
func ExecuteRemoteAsync(ctx context.Context, c *Client, req *PreparedRequest) (string, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	defer c.closeBody(resp.Body)

	if err := Classify(resp, ExpectAccepted); err != nil {
		return "", err
	}
	return resp.Header.Get("Location"), nil
}
