package api

import (
	"errors"
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const maxBodySize = 64 << 10

// sonicSerializer plugs sonic into echo's JSON responses.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeBody(c, i)
}

// decodeBody strictly decodes a JSON request body into v. Unknown fields,
// trailing data and oversized bodies are rejected.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required", err)
		}
		return badRequest("invalid body", err)
	}
	if dec.More() {
		return badRequest("invalid body", errors.New("unexpected data after JSON body"))
	}
	return nil
}
