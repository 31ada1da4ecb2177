package xkv

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ClusterDescriptor 集群描述符：[description:id@]host:port[,host:port...]。
type ClusterDescriptor struct {
	Description string
	ID          string
	Endpoints   []string
	// File 描述符来自文件时为该文件的绝对路径。
	File string
}

// String 返回规范化的描述符字符串。
func (d ClusterDescriptor) String() string {
	var b strings.Builder
	if d.Description != "" || d.ID != "" {
		b.WriteString(d.Description)
		b.WriteByte(':')
		b.WriteString(d.ID)
		b.WriteByte('@')
	}
	b.WriteString(strings.Join(d.Endpoints, ","))
	return b.String()
}

// ParseClusterDescriptor 解析集群描述符。s 指向一个已存在的文件时，
// 读取文件中第一行非空、非 # 注释的内容作为描述符。
func ParseClusterDescriptor(s string) (ClusterDescriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ClusterDescriptor{}, fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}
	if info, err := os.Stat(s); err == nil && info.Mode().IsRegular() {
		return parseDescriptorFile(s)
	}
	return parseDescriptor(s)
}

func parseDescriptorFile(path string) (ClusterDescriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ClusterDescriptor{}, fmt.Errorf("%w: resolve %q: %w", ErrInvalidDescriptor, path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ClusterDescriptor{}, fmt.Errorf("%w: read %q: %w", ErrInvalidDescriptor, abs, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := parseDescriptor(line)
		if err != nil {
			return ClusterDescriptor{}, fmt.Errorf("%s: %w", abs, err)
		}
		d.File = abs
		return d, nil
	}
	return ClusterDescriptor{}, fmt.Errorf("%w: %s contains no descriptor", ErrInvalidDescriptor, abs)
}

func parseDescriptor(s string) (ClusterDescriptor, error) {
	var d ClusterDescriptor
	rest := s
	if at := strings.LastIndex(s, "@"); at >= 0 {
		head := s[:at]
		rest = s[at+1:]
		desc, id, ok := strings.Cut(head, ":")
		if !ok || desc == "" || id == "" {
			return ClusterDescriptor{}, fmt.Errorf("%w: %q: expected description:id@ prefix", ErrInvalidDescriptor, s)
		}
		d.Description, d.ID = desc, id
	}
	for ep := range strings.SplitSeq(rest, ",") {
		ep = strings.TrimSpace(ep)
		if err := validateEndpoint(ep); err != nil {
			return ClusterDescriptor{}, fmt.Errorf("%w: %q: %w", ErrInvalidDescriptor, s, err)
		}
		d.Endpoints = append(d.Endpoints, ep)
	}
	return d, nil
}

// validateEndpoint 检查 host:port，允许 http:// 或 https:// 前缀。
func validateEndpoint(ep string) error {
	hostPort := strings.TrimPrefix(strings.TrimPrefix(ep, "https://"), "http://")
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", ep, err)
	}
	if host == "" {
		return fmt.Errorf("endpoint %q: empty host", ep)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("endpoint %q: invalid port", ep)
	}
	return nil
}
