package router

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"chatrelay/pkg/types"
)

// decodeFile accepts raw base64 or a data URL and returns the decoded bytes
// along with the media type declared by the data URL, if any.
func decodeFile(data string) ([]byte, string, error) {
	payload := strings.TrimSpace(data)
	declared := ""

	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", types.ErrInvalidFile
		}
		declared = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	if payload == "" {
		return nil, "", types.ErrInvalidFile
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", types.ErrInvalidFile
	}
	return raw, declared, nil
}

// inspectFile validates a shared file and sniffs its real media type.
func inspectFile(cmd types.ShareFile, maxBytes int) (size int, fileType, detected string, err error) {
	if strings.TrimSpace(cmd.FileName) == "" {
		return 0, "", "", types.ErrInvalidFile
	}

	// Base64 inflates by 4/3; reject obviously oversized payloads before decoding.
	if maxBytes > 0 && len(cmd.Data) > base64.StdEncoding.EncodedLen(maxBytes)+256 {
		return 0, "", "", types.ErrFileTooLarge
	}

	raw, declared, err := decodeFile(cmd.Data)
	if err != nil {
		return 0, "", "", err
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		return 0, "", "", types.ErrFileTooLarge
	}

	detected = mimetype.Detect(raw).String()

	fileType = strings.TrimSpace(cmd.FileType)
	if fileType == "" {
		fileType = declared
	}
	if fileType == "" {
		fileType = detected
	}
	return len(raw), fileType, detected, nil
}
