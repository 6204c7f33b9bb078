package miniapp

import "errors"

var ErrAppNotFound = errors.New("app not found")

type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	Path        string `json:"path"`
}

var directory = []App{
	{ID: "quran", Name: "القرآن الكريم", Description: "قراءة المصحف والاستماع للتلاوة مع تتبع الآيات", Category: "إسلاميات", Icon: "📖", Path: "/apps/quran/surahs/1"},
	{ID: "prayer", Name: "مواقيت الصلاة", Description: "مواقيت الصلاة والتقويم الهجري والأذان", Category: "إسلاميات", Icon: "🕌", Path: "/apps/prayer/timings"},
	{ID: "weather", Name: "الطقس", Description: "حالة الطقس الحالية وتوقعات الأيام القادمة", Category: "أدوات", Icon: "🌤️", Path: "/apps/weather"},
	{ID: "grades", Name: "حاسبة المعدل", Description: "حساب المعدل التراكمي حسب الساعات المعتمدة", Category: "تعليم", Icon: "🎓", Path: "/apps/grades"},
	{ID: "search", Name: "البحث", Description: "بحث في الويب والصور", Category: "أدوات", Icon: "🔎", Path: "/apps/search"},
	{ID: "social", Name: "المحاكي الاجتماعي", Description: "نقاش بين شخصيات افتراضية حول أي موضوع", Category: "ذكاء اصطناعي", Icon: "👥", Path: "/apps/social/simulate"},
}

// Apps lists the bundled mini-apps, optionally narrowed to one category.
func Apps(category string) []App {
	apps := make([]App, 0, len(directory))
	for _, app := range directory {
		if category == "" || app.Category == category {
			apps = append(apps, app)
		}
	}
	return apps
}

func FindApp(id string) (App, error) {
	for _, app := range directory {
		if app.ID == id {
			return app, nil
		}
	}
	return App{}, ErrAppNotFound
}
