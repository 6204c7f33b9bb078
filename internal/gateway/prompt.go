package gateway

import (
	"strings"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const (
	chartInstructions = "عند الحاجة إلى رسم بياني أضف كتلة واحدة بالشكل:\n" +
		"```json:chart\n{\"type\":\"bar|line|pie\",\"title\":\"...\",\"labels\":[...],\"datasets\":[{\"label\":\"...\",\"data\":[...]}]}\n```"
	whiteboardInstructions = "لشرح الأفكار خطوة بخطوة استخدم السبورة:\n" +
		"```json:whiteboard\n[{\"type\":\"text|latex|mermaid|html|svg|generate_image\",\"content\":\"...\"}]\n```\n" +
		"الخطوة من نوع generate_image تحتوي وصفاً للصورة المطلوبة."
	qrInstructions = "لإنشاء رمز QR أضف:\n```json:qr\n{\"data\":\"...\"}\n```"
	designInstructions = "عند طلب تصميم أو صفحة ويب أعد صفحة HTML كاملة داخل:\n" +
		"```html:design\n<!DOCTYPE html>...\n```"
	mermaidInstructions  = "للمخططات استخدم كتل ```mermaid."
	thinkingInstructions = "قبل الإجابة فكّر بعمق وابدأ ردك بكتلة:\n" +
		"<deep_thinking>{\"method\":\"...\",\"plan\":[\"...\"]}</deep_thinking>"
	quranInstructions = "للانتقال إلى آية استخدم [[SCROLL_TO:السورة:الآية]] ولتشغيلها [[PLAY:السورة:الآية]] بالأرقام."
	baseInstructions  = "أجب باللغة العربية الفصحى ما لم يطلب المستخدم غير ذلك. استخدم Markdown للتنسيق."
)

// BuildSystemPrompt composes the persona prompt with the directive formats its
// features allow. A non-empty override replaces the persona prompt but keeps
// the directive formats.
func BuildSystemPrompt(persona model.Persona, opts StreamOptions) string {
	base := persona.SystemPrompt
	if opts.SystemOverride != "" {
		base = opts.SystemOverride
	}
	parts := []string{base, baseInstructions}
	if persona.Features.Charts {
		parts = append(parts, chartInstructions, qrInstructions, mermaidInstructions)
	}
	if persona.Features.Whiteboard {
		parts = append(parts, whiteboardInstructions)
	}
	if persona.Features.Design {
		parts = append(parts, designInstructions)
	}
	if opts.DeepThinking && persona.Features.DeepThinking {
		parts = append(parts, thinkingInstructions)
	}
	parts = append(parts, quranInstructions)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}
