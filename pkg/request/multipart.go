package request

import (
	"bytes"
	"mime/multipart"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

// attachMultipart writes each body field as a string form part (§4.2:
// "multipart ... each part resolved as a string part" — no file parts
// in this runtime's fixed vocabulary).
func attachMultipart(p *Prepared, body model.RequestBody, vars *varstore.Store) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range body.Fields {
		if f.Disabled {
			continue
		}
		if err := w.WriteField(vars.Resolve(f.Key), vars.Resolve(f.Value)); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	p.Body = buf.Bytes()
	p.ContentType = w.FormDataContentType()
	return nil
}
