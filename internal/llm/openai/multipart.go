package openai

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/tidwall/gjson"
)

const defaultAudioFilename = "audio"

var errMissingAudioFile = errors.New(`audio_stt payload needs a base64 encoded "file" field`)

// transcriptionForm turns a JSON payload into the multipart form
// /audio/transcriptions expects. "file" carries base64 audio, "filename"
// names it, and every other scalar field becomes a form field.
func transcriptionForm(payload []byte) ([]byte, string, error) {
	doc := gjson.ParseBytes(payload)

	file := doc.Get("file")
	if file.Type != gjson.String || file.Str == "" {
		return nil, "", errMissingAudioFile
	}
	audio, err := base64.StdEncoding.DecodeString(file.Str)
	if err != nil {
		return nil, "", fmt.Errorf("decode audio file: %w", err)
	}
	filename := doc.Get("filename").String()
	if filename == "" {
		filename = defaultAudioFilename
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}

	var fieldErr error
	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "file", "filename":
			return true
		}
		if value.IsObject() || value.IsArray() {
			fieldErr = fmt.Errorf("field %q must be a scalar", key.Str)
			return false
		}
		fieldErr = w.WriteField(key.Str, value.String())
		return fieldErr == nil
	})
	if fieldErr != nil {
		return nil, "", fieldErr
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
