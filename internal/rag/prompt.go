package rag

import "strings"

// SystemPrompt instructs the model to answer from the context only and to
// reply with a JSON object.
const SystemPrompt = `Ты помощник, который отвечает на вопросы по документам школы «Летово».
Отвечай только на основе предоставленного контекста, ничего не придумывай.
Если в контексте нет ответа, верни в поле answer ровно строку "` + NoDataSentinel + `".
Если вопрос требует перечисления, верни answer списком строк, по одному пункту на элемент, без пропусков.
Ответ верни строго одним JSON-объектом внутри тегов <json></json>:
{"answer": "строка или список строк", "sources": [{"title": "название документа", "page": номер страницы, "url": "ссылка из заголовка блока"}], "status": "answerable" или "not_found"}
Ссылки и номера страниц бери только из заголовков блоков контекста.`

const listHintPrefix = "\n\nПодсказка: найденные пункты (полный список, используй их как ответ):\n"

// BuildUserPrompt joins the context, the question and optional hints.
func BuildUserPrompt(context, question string, items []string, scoreHint string) string {
	var b strings.Builder
	b.WriteString("Контекст:\n")
	b.WriteString(context)
	b.WriteString("\n\nВопрос: ")
	b.WriteString(question)
	if len(items) > 0 {
		b.WriteString(listHintPrefix)
		b.WriteString(strings.Join(items, "\n"))
	}
	if scoreHint != "" {
		b.WriteString("\n\n")
		b.WriteString(scoreHint)
	}
	return b.String()
}
