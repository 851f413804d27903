package proxy

import (
	"net/http"

	"github.com/elazarl/goproxy"
)

// HTTPGate is a forwarding HTTP/HTTPS proxy that refuses clients whose
// address is on the block list. Allowed requests are forwarded unchanged.
type HTTPGate struct {
	gate  *Gate
	proxy *goproxy.ProxyHttpServer
}

func NewHTTPGate(gate *Gate) *HTTPGate {
	p := &HTTPGate{
		gate:  gate,
		proxy: goproxy.NewProxyHttpServer(),
	}

	p.proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(
		func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			if p.check(ctx.Req).Blocked() {
				return goproxy.RejectConnect, host
			}
			return goproxy.OkConnect, host
		}))

	p.proxy.OnRequest().DoFunc(
		func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			if p.check(req).Blocked() {
				return req, goproxy.NewResponse(req,
					goproxy.ContentTypeText,
					http.StatusForbidden,
					p.gate.KickMessage()+"\n",
				)
			}
			return req, nil
		})

	return p
}

func (p *HTTPGate) Handler() http.Handler {
	return p.proxy
}

// check evaluates the client behind req. Requests without a parsable peer
// address are let through, matching the fail-open lookup policy.
func (p *HTTPGate) check(req *http.Request) Decision {
	if req == nil {
		return Decision{Action: ActionAllow}
	}
	addr, ok := remoteAddr(req.RemoteAddr)
	if !ok {
		return Decision{Action: ActionAllow}
	}
	return p.gate.Check(addr, SourceHTTP, "")
}
