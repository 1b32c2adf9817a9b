package swagger

import _ "embed"

// OpenAPI is the embedded OpenAPI document served at OpenAPIPath.
//
//go:embed openapi.yaml
var OpenAPI []byte
