package tools

import (
	"context"
	"errors"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/document"
	"github.com/wudi/pdftools/parser"
	"github.com/wudi/pdftools/security"
)

// Unlock opens the input with the user or owner password and writes it
// without encryption. Unencrypted input is rewritten as is.
func Unlock(ctx context.Context, in Input) (Output, error) {
	path, err := firstInput(in)
	if err != nil {
		return Output{}, err
	}
	doc, err := openPDF(ctx, path, in.Params.String("password"))
	if err != nil {
		if errors.Is(err, security.ErrInvalidPassword) || errors.Is(err, parser.ErrPasswordRequired) {
			return Output{}, apperr.Wrap(apperr.OperationFailure, "Incorrect password", err)
		}
		return Output{}, err
	}
	if err := savePDF(ctx, doc, in.Target); err != nil {
		return Output{}, err
	}
	return single(in), nil
}

// Protect encrypts the input with AES-256. The password opens the file as
// user and owner; only extraction for accessibility is permitted.
func Protect(ctx context.Context, in Input) (Output, error) {
	password := in.Params.String("password")
	if password == "" {
		return Output{}, Failure("Password is required")
	}
	doc, err := openFirst(ctx, in)
	if err != nil {
		return Output{}, err
	}
	enc, err := security.NewAES256Encryption(password, password, security.Permissions{ExtractAccessible: true})
	if err != nil {
		return Output{}, err
	}
	err = doc.SaveFile(ctx, in.Target, document.SaveOptions{Compression: compression, Encryption: enc})
	if err != nil {
		return Output{}, err
	}
	return single(in), nil
}
