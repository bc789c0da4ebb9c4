// Package policy 读取 .docx 格式的公司规章
package policy

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"
)

const documentPart = "word/document.xml"

// Load 读取规章文本，每个非空段落一行
// 文件不存在或无法解析时返回空串
func Load(path string, log *zap.Logger) string {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		return ""
	}
	text, err := ReadDocx(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("policy docx not found", zap.String("path", path))
		return ""
	}
	if err != nil {
		log.Error("failed to load policy docx", zap.String("path", path), zap.Error(err))
		return ""
	}
	log.Info("policy loaded", zap.String("path", path), zap.Int("chars", len([]rune(text))))
	return text
}

// ReadDocx 提取 docx 正文段落
func ReadDocx(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", documentPart, err)
		}
		defer rc.Close()
		return paragraphs(rc)
	}
	return "", fmt.Errorf("docx has no %s", documentPart)
}

// paragraphs 遍历 w:p 段落，拼接其中的 w:t 文本
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		lines  []string
		cur    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				cur.Reset()
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte(' ')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(cur.String()); line != "" {
					lines = append(lines, line)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
