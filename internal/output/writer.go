package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/rs/zerolog/log"

	"github.com/RecoveryAshes/SiteHarvest/internal/utils"
)

// Kind 产物类型
type Kind string

const (
	KindHTML     Kind = "html"
	KindText     Kind = "text"
	KindJSON     Kind = "json"
	KindMarkdown Kind = "markdown"
)

// FilePrefix 产物文件名前缀
const FilePrefix = "page"

var kindDirs = map[Kind]string{
	KindHTML:     "html_docs",
	KindText:     "text_docs",
	KindJSON:     "json_docs",
	KindMarkdown: "markdown_docs",
}

var kindExts = map[Kind]string{
	KindHTML:     "html",
	KindText:     "txt",
	KindJSON:     "json",
	KindMarkdown: "md",
}

// AllKinds 所有产物类型,按写入顺序
var AllKinds = []Kind{KindHTML, KindText, KindJSON, KindMarkdown}

// Dir 返回某类产物在baseDir下的目录名
func (k Kind) Dir() string {
	return kindDirs[k]
}

// Ext 返回某类产物的扩展名
func (k Kind) Ext() string {
	return kindExts[k]
}

// Options 产物开关,构造后不再变化
type Options struct {
	BaseDir  string
	HTML     bool
	Text     bool
	JSON     bool
	Markdown bool
}

// Enabled 返回开启的产物类型
func (o Options) Enabled() []Kind {
	flags := map[Kind]bool{
		KindHTML:     o.HTML,
		KindText:     o.Text,
		KindJSON:     o.JSON,
		KindMarkdown: o.Markdown,
	}
	kinds := make([]Kind, 0, len(AllKinds))
	for _, k := range AllKinds {
		if flags[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// PageRecord JSON产物内容
type PageRecord struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Writer 把一个页面写成若干产物文件
// 序号取目录中已有普通文件数+1, 计数与写入在同一把锁内完成
type Writer struct {
	opts  Options
	kinds []Kind
	conv  *converter.Converter
	index *Index

	mu sync.Mutex
}

// NewWriter 创建产物写入器并建立开启类型的目录
func NewWriter(opts Options) (*Writer, error) {
	w := &Writer{
		opts:  opts,
		kinds: opts.Enabled(),
	}
	if opts.Markdown {
		w.conv = newMarkdownConverter()
	}
	for _, k := range w.kinds {
		if err := os.MkdirAll(w.dir(k), 0755); err != nil {
			return nil, fmt.Errorf("创建产物目录失败 [%s]: %w", k.Dir(), err)
		}
	}
	return w, nil
}

// SetIndex 设置产物索引,每写出一个文件记录一条
func (w *Writer) SetIndex(index *Index) {
	w.index = index
}

// Kinds 返回开启的产物类型
func (w *Writer) Kinds() []Kind {
	return w.kinds
}

func (w *Writer) dir(k Kind) string {
	return filepath.Join(w.opts.BaseDir, k.Dir())
}

// Write 写入一个页面的全部产物
func (w *Writer) Write(htmlContent, sourceURL string) error {
	if len(w.kinds) == 0 {
		return nil
	}

	contents := make(map[Kind][]byte, len(w.kinds))
	var text string
	if w.opts.Text || w.opts.JSON {
		t, err := ExtractText(htmlContent)
		if err != nil {
			return fmt.Errorf("提取文本失败: %w", err)
		}
		text = t
	}

	for _, k := range w.kinds {
		switch k {
		case KindHTML:
			pretty, err := Prettify(htmlContent)
			if err != nil {
				return fmt.Errorf("格式化HTML失败: %w", err)
			}
			contents[k] = []byte(pretty)
		case KindText:
			contents[k] = []byte(text)
		case KindJSON:
			data, err := utils.MarshalJSONIndent(PageRecord{
				Text:   strings.ReplaceAll(text, "\n", " "),
				Source: sourceURL,
			})
			if err != nil {
				return err
			}
			contents[k] = data
		case KindMarkdown:
			md, err := ToMarkdown(w.conv, htmlContent, sourceURL)
			if err != nil {
				return fmt.Errorf("转换Markdown失败: %w", err)
			}
			contents[k] = []byte(md)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, k := range w.kinds {
		seq, path, err := w.nextPath(k)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, contents[k], 0644); err != nil {
			return fmt.Errorf("写入产物失败 [%s]: %w", path, err)
		}
		log.Debug().Str("kind", string(k)).Str("path", path).Str("source", sourceURL).Msg("产物已写入")

		if w.index != nil {
			rec := ArtifactRecord{Kind: k, Seq: seq, Path: path, Source: sourceURL}
			if err := w.index.Record(context.Background(), rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// nextPath 计算下一个文件名: page_<已有普通文件数+1>.<ext>
func (w *Writer) nextPath(k Kind) (int, string, error) {
	dir := w.dir(k)
	n, err := countRegularFiles(dir)
	if err != nil {
		return 0, "", err
	}
	seq := n + 1
	return seq, filepath.Join(dir, fmt.Sprintf("%s_%d.%s", FilePrefix, seq, k.Ext())), nil
}

func countRegularFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("读取产物目录失败 [%s]: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

// ClearDirs 清空所有产物目录 (全新运行)
func (w *Writer) ClearDirs() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, k := range AllKinds {
		dir := w.dir(k)
		if _, err := os.Stat(dir); os.IsNotExist(err) && !w.enabled(k) {
			continue
		}
		if err := utils.ClearDir(dir); err != nil {
			return err
		}
	}
	if w.index != nil {
		if err := w.index.Reset(context.Background()); err != nil {
			return err
		}
	}
	utils.Infof("已清空产物目录: %s", w.opts.BaseDir)
	return nil
}

func (w *Writer) enabled(k Kind) bool {
	for _, e := range w.kinds {
		if e == k {
			return true
		}
	}
	return false
}
