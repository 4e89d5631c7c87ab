// healthprobe is a tiny sidecar probe: it polls the server's /healthz and
// /readyz endpoints and exits non-zero when either fails. Suitable for
// container HEALTHCHECK and CI smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	base := flag.String("base", "http://127.0.0.1:8080", "base URL of the trellis server")
	timeout := flag.Duration("timeout", 3*time.Second, "per-request timeout")
	interval := flag.Duration("interval", 0, "poll interval; 0 probes once and exits")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	for {
		ok := true
		for _, path := range []string{"/healthz", "/readyz"} {
			if err := probe(client, *base+path, *timeout); err != nil {
				fmt.Fprintf(os.Stderr, "probe %s failed: %v\n", path, err)
				ok = false
			}
		}
		if *interval == 0 {
			if !ok {
				os.Exit(1)
			}
			fmt.Println("ok")
			return
		}
		if !ok {
			os.Exit(1)
		}
		fmt.Printf("ok %s\n", time.Now().UTC().Format(time.RFC3339))
		time.Sleep(*interval)
	}
}

func probe(client *fasthttp.Client, url string, timeout time.Duration) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode())
	}
	return nil
}
