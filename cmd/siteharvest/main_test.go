package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/RecoveryAshes/SiteHarvest/internal/core"
)

func TestStdinConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"输入yes", "yes\n", true},
		{"大小写与空白", "  YES \n", true},
		{"没有换行", "yes", true},
		{"输入no", "no\n", false},
		{"直接回车", "\n", false},
		{"输入为空", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			confirm := stdinConfirm(strings.NewReader(tt.input), &out)
			if got := confirm(core.FreshModePrompt); got != tt.want {
				t.Errorf("confirm() = %v, 期望 %v", got, tt.want)
			}
			if out.String() != core.FreshModePrompt {
				t.Errorf("提示输出 = %q", out.String())
			}
		})
	}
}

func TestPrintComparison(t *testing.T) {
	result := core.CompareLinks([]string{"a", "b", "c"}, []string{"b", "d"})

	var text bytes.Buffer
	if err := printComparison(&text, result, false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"旧链接: 3", "新链接: 2", "差异: 3 (仅旧 2, 仅新 1)", "交集: 1"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("输出缺少 %q:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	if err := printComparison(&js, result, true); err != nil {
		t.Fatal(err)
	}
	var decoded core.LinkComparison
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON输出无法解析: %v", err)
	}
	if decoded.Intersection != 1 || len(decoded.OnlyNew) != 1 {
		t.Errorf("JSON输出 = %+v", decoded)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"crawl": false, "page": false, "context": false, "compare": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("缺少子命令 %s", name)
		}
	}

	for _, flag := range []string{"url", "prefix", "cap", "resume", "engine", "save-html", "save-text", "save-json", "save-md", "yes"} {
		if crawlCmd.Flags().Lookup(flag) == nil {
			t.Errorf("crawl 缺少参数 --%s", flag)
		}
	}
	for _, flag := range []string{"config", "header", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("缺少全局参数 --%s", flag)
		}
	}
}
