package blogclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultPingMethod = "weblogUpdates.ping"

// XMLRPCPinger sends weblogUpdates.ping style notifications.
type XMLRPCPinger struct {
	httpClient *http.Client
	method     string
}

func NewXMLRPCPinger(httpClient *http.Client, method string) *XMLRPCPinger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if method == "" {
		method = DefaultPingMethod
	}
	return &XMLRPCPinger{httpClient: httpClient, method: method}
}

type methodCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName string     `xml:"methodName"`
	Params     []rpcParam `xml:"params>param"`
}

type methodResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []rpcParam `xml:"params>param"`
	Fault   *rpcValue  `xml:"fault>value"`
}

type rpcParam struct {
	Value rpcValue `xml:"value"`
}

type rpcValue struct {
	Text    string     `xml:",chardata"`
	String  *string    `xml:"string"`
	Boolean *string    `xml:"boolean"`
	Int     *string    `xml:"int"`
	Struct  *rpcStruct `xml:"struct"`
}

type rpcStruct struct {
	Members []rpcMember `xml:"member"`
}

type rpcMember struct {
	Name  string   `xml:"name"`
	Value rpcValue `xml:"value"`
}

func (v rpcValue) scalar() string {
	switch {
	case v.String != nil:
		return *v.String
	case v.Boolean != nil:
		return *v.Boolean
	case v.Int != nil:
		return *v.Int
	}
	return strings.TrimSpace(v.Text)
}

func (v rpcValue) member(name string) (rpcValue, bool) {
	if v.Struct == nil {
		return rpcValue{}, false
	}
	for _, m := range v.Struct.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return rpcValue{}, false
}

func stringValue(s string) rpcParam {
	return rpcParam{Value: rpcValue{String: &s}}
}

// Ping posts the notification. Only http and https URLs are contacted.
func (p *XMLRPCPinger) Ping(ctx context.Context, pingURL, blogName, blogURL string) error {
	u, err := url.Parse(pingURL)
	if err != nil {
		return fmt.Errorf("parse ping url: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return ErrUnsupportedScheme
	}

	call := methodCall{
		MethodName: p.method,
		Params:     []rpcParam{stringValue(blogName), stringValue(blogURL)},
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(call); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: http %d", u.Host, resp.StatusCode)
	}

	var res methodResponse
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&res); err != nil {
		return fmt.Errorf("ping %s: decode response: %w", u.Host, err)
	}
	if res.Fault != nil {
		msg, _ := res.Fault.member("faultString")
		return fmt.Errorf("ping %s: fault: %s", u.Host, msg.scalar())
	}
	if len(res.Params) > 0 {
		v := res.Params[0].Value
		if flerr, ok := v.member("flerror"); ok && (flerr.scalar() == "1" || flerr.scalar() == "true") {
			msg, _ := v.member("message")
			return fmt.Errorf("ping %s: %s", u.Host, msg.scalar())
		}
	}
	return nil
}
