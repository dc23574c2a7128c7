// Package httpclient builds and sends prediction requests for servebench.
//
// # Request Building
//
// A [RequestBuilder] binds a backend to its target URL once. Each call to
// Build serialises one instruction into a fresh POST:
//
//	builder, err := httpclient.NewRequestBuilder(be)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, instruction)
//
// Authorization is delegated to the backend, so credential failures surface
// from Build wrapped around the provider's error.
//
// # HTTP Client
//
// The [NewClient] function creates an HTTP client tuned for sustained load
// with connection reuse across simulated users:
//
//	client := httpclient.NewClient(60 * time.Second)
//	resp, err := client.Do(req)
package httpclient
