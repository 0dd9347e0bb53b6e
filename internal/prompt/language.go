package prompt

import (
	"mime"
	"path/filepath"
	"strings"
)

// 扩展名到语言名的映射；未命中时退回 MIME 推断。
var extLanguage = map[string]string{
	"md":       "Markdown",
	"markdown": "Markdown",
	"txt":      "纯文本",
	"rs":       "Rust",
	"py":       "Python",
	"js":       "JavaScript",
	"ts":       "TypeScript",
	"tsx":      "TypeScript/TSX",
	"jsx":      "JavaScript/JSX",
	"go":       "Go",
	"java":     "Java",
	"c":        "C",
	"cpp":      "C++",
	"cxx":      "C++",
	"cc":       "C++",
	"hpp":      "C++",
	"hxx":      "C++",
	"h":        "C/C++ 头文件",
	"cs":       "C#",
	"swift":    "Swift",
	"kt":       "Kotlin",
	"kts":      "Kotlin",
	"php":      "PHP",
	"rb":       "Ruby",
	"scala":    "Scala",
	"lua":      "Lua",
	"sh":       "Shell",
	"bash":     "Shell",
	"ps1":      "PowerShell",
	"html":     "HTML",
	"htm":      "HTML",
	"css":      "CSS",
	"scss":     "SCSS/SASS",
	"sass":     "SCSS/SASS",
	"less":     "LESS",
	"json":     "JSON",
	"toml":     "TOML",
	"yaml":     "YAML",
	"yml":      "YAML",
	"ini":      "INI",
	"env":      "环境变量",
	"lock":     "锁定文件",
	"xml":      "XML",
	"sql":      "SQL",
	"csv":      "CSV",
	"tsv":      "TSV",
	"bin":      "二进制",
	"wasm":     "WebAssembly",
	"exe":      "可执行文件",
	"dll":      "动态链接库",
}

// mimeLanguage: MIME 推断命中后的二次映射；其余一律“未知语言”。
var mimeLanguage = map[string]string{
	"application/json": "JSON",
	"text/plain":       "纯文本",
	"text/markdown":    "Markdown",
	"text/css":         "CSS",
	"text/html":        "HTML",
}

const unknownLanguage = "未知语言"

// DetectLanguage 依据文件名推断语言标签（先扩展名表，后 MIME）。
func DetectLanguage(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if lang, ok := extLanguage[ext]; ok {
		return lang
	}
	mt := mime.TypeByExtension("." + ext)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	if lang, ok := mimeLanguage[strings.TrimSpace(mt)]; ok {
		return lang
	}
	return unknownLanguage
}
