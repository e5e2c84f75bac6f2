package cors

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/xela07ax/tonebridge-edge/internal/infra"
)

// VaryValue перечисляет свойства запроса, от которых зависит политика.
// Промежуточные кэши обязаны учитывать их в ключе.
const VaryValue = "Origin, Access-Control-Request-Method, Access-Control-Request-Headers"

// Policy — иммутабельный вычислитель CORS-заголовков. Строится один раз
// из конфигурации и дальше работает как чистая функция: никакого состояния
// между вызовами Evaluate.
type Policy struct {
	wildcard   bool
	origins    map[string]struct{}
	methods    []string            // исходный порядок для заголовка
	methodSet  map[string]struct{} // верхний регистр
	headers    []string
	headerSet  map[string]struct{} // нижний регистр
	production bool
}

// HeaderSet — результат вычисления политики для одного запроса.
// Пустой AllowOrigin означает отказ: заголовки origin/credentials не ставятся,
// и браузер сам заблокирует чтение ответа.
type HeaderSet struct {
	AllowOrigin      string
	AllowCredentials bool
	AllowMethods     string
	AllowHeaders     string
	Vary             string
}

// NewPolicy строит вычислитель из конфигурации.
func NewPolicy(cfg infra.CORSConfig, environment string) *Policy {
	p := &Policy{
		origins:    make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:    cfg.AllowedMethods,
		methodSet:  make(map[string]struct{}, len(cfg.AllowedMethods)),
		headers:    cfg.AllowedHeaders,
		headerSet:  make(map[string]struct{}, len(cfg.AllowedHeaders)),
		production: environment == infra.EnvProduction,
	}

	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.wildcard = true
			continue
		}
		p.origins[o] = struct{}{}
	}
	for _, m := range cfg.AllowedMethods {
		p.methodSet[strings.ToUpper(m)] = struct{}{}
	}
	for _, h := range cfg.AllowedHeaders {
		p.headerSet[strings.ToLower(h)] = struct{}{}
	}
	return p
}

// Evaluate вычисляет заголовки для пары (origin, preflight-поля).
// reqMethod — значение Access-Control-Request-Method,
// reqHeaders — значение Access-Control-Request-Headers (через запятую).
func (p *Policy) Evaluate(origin, reqMethod, reqHeaders string) HeaderSet {
	hs := HeaderSet{
		Vary:         VaryValue,
		AllowMethods: p.resolveMethods(reqMethod),
		AllowHeaders: p.resolveHeaders(reqHeaders),
	}

	switch {
	case origin != "" && p.originAllowed(origin):
		// Эхо конкретного проверенного origin — только тогда можно credentials
		hs.AllowOrigin = origin
		hs.AllowCredentials = true
	case p.wildcard && origin == "":
		// Wildcard без origin: "*" и НИКОГДА credentials
		// (credentialed-wildcard — известная CORS-уязвимость)
		hs.AllowOrigin = "*"
	default:
		// Отказ: заголовки не ставим
	}
	return hs
}

// originAllowed: синтаксис → прод-ограничения → allowlist.
func (p *Policy) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}

	// В production dev-origin'ы (localhost и ко) пропускаются только если
	// перечислены в allowlist дословно — защита от утечки дев-конфига в прод
	if p.production && isLoopbackHost(u.Hostname()) {
		_, listed := p.origins[origin]
		return listed
	}

	if p.wildcard {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".local")
}

// resolveMethods: эхо запрошенного preflight-метода, если он разрешен,
// иначе — полный список.
func (p *Policy) resolveMethods(reqMethod string) string {
	if reqMethod != "" {
		if _, ok := p.methodSet[strings.ToUpper(reqMethod)]; ok {
			return reqMethod
		}
	}
	return strings.Join(p.methods, ", ")
}

// resolveHeaders фильтрует запрошенные заголовки по allowlist'у
// (без учета регистра). Запрещенные имена в ответ не попадают никогда;
// если не уцелел ни один — отдаем полный список.
func (p *Policy) resolveHeaders(reqHeaders string) string {
	if reqHeaders == "" {
		return strings.Join(p.headers, ", ")
	}

	var passed []string
	for _, h := range strings.Split(reqHeaders, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := p.headerSet[strings.ToLower(h)]; ok {
			passed = append(passed, h)
		}
	}
	if len(passed) == 0 {
		return strings.Join(p.headers, ", ")
	}
	return strings.Join(passed, ", ")
}

// Apply переносит вычисленные значения на http-ответ.
func (hs HeaderSet) Apply(h http.Header) {
	h.Set("Vary", hs.Vary)
	h.Set("Access-Control-Allow-Methods", hs.AllowMethods)
	h.Set("Access-Control-Allow-Headers", hs.AllowHeaders)
	if hs.AllowOrigin != "" {
		h.Set("Access-Control-Allow-Origin", hs.AllowOrigin)
	}
	if hs.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
