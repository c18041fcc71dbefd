// Package jobfile reads a send job from YAML.
//
//	sender: me@gmail.com
//	subject: Weekly report
//	body: |
//	  Hello,
//	  the numbers are attached.
//	attachment: report.pdf
//	recipients_file: list.xlsx
//	daily_limit: 200
//	send_time: "09:30"
//
// Relative file paths are resolved against the job file's directory.
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dailysend/internal/model"
)

// Load reads the job file at path. Unknown keys are an error.
func Load(path string) (model.JobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.JobRequest{}, fmt.Errorf("read job file: %w", err)
	}

	req, err := Parse(data)
	if err != nil {
		return model.JobRequest{}, fmt.Errorf("parse job file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	req.RecipientsFile = resolve(dir, req.RecipientsFile)
	req.Attachment = resolve(dir, req.Attachment)
	return req, nil
}

// Parse decodes a job from YAML without touching the file system.
func Parse(data []byte) (model.JobRequest, error) {
	var req model.JobRequest

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return model.JobRequest{}, err
	}
	return req, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
