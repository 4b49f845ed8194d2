package console

import "strings"

// Category: область конфигурации, к которой относится код инициализации.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryNames         Category = "names"
	CategoryStorage       Category = "storage"
)

// Categories перечисляет все категории в порядке сборки кода.
var Categories = []Category{CategoryCommunication, CategoryNames, CategoryStorage}

// CategoryConfig: конфигурация категории.
type CategoryConfig map[string]any

// Bool читает булево значение ключа; отсутствующий ключ дает false.
func (c CategoryConfig) Bool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// String читает строковое значение ключа.
func (c CategoryConfig) String(key string) string {
	v, _ := c[key].(string)
	return v
}

// Predicate решает, включать ли блок кода; не должен иметь побочных эффектов.
type Predicate func(cfg CategoryConfig) bool

// InitCode: блок кода и условие его включения.
type InitCode struct {
	Block      string
	ShouldInit Predicate
}

// InitCodeSource отдает объявленные плагином блоки для категории в порядке объявления.
type InitCodeSource interface {
	InitConsoleCode(category Category) []InitCode
}

// InitCodeAssembler собирает код инициализации провайдеров для исполнителя кода.
type InitCodeAssembler struct {
	plugins Plugins
	configs map[Category]CategoryConfig
}

// NewInitCodeAssembler фиксирует снимок конфигурации категорий; отсутствующая категория получает пустую конфигурацию.
func NewInitCodeAssembler(plugins Plugins, configs map[Category]CategoryConfig) *InitCodeAssembler {
	snapshot := make(map[Category]CategoryConfig, len(Categories))
	for _, c := range Categories {
		cfg := CategoryConfig{}
		for k, v := range configs[c] {
			cfg[k] = v
		}
		snapshot[c] = cfg
	}
	return &InitCodeAssembler{plugins: plugins, configs: snapshot}
}

// Assemble склеивает блоки с истинным условием: плагины в порядке регистрации,
// внутри плагина категории в порядке Categories, внутри категории в порядке объявления.
func (a *InitCodeAssembler) Assemble() string {
	if a.plugins == nil {
		return ""
	}
	var sb strings.Builder
	for _, src := range a.plugins.InitCodeSources() {
		for _, c := range Categories {
			cfg := a.configs[c]
			for _, code := range src.InitConsoleCode(c) {
				if code.ShouldInit == nil || !code.ShouldInit(cfg) {
					continue
				}
				sb.WriteString(code.Block)
			}
		}
	}
	return sb.String()
}
