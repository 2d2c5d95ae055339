package bot

import "fmt"

const (
	langEN = "en"
	langUK = "uk"
)

type msgKey int

const (
	msgWelcome msgKey = iota
	msgLangSet
	msgFindUsage
	msgSearching
	msgNoLinks
	msgNoContent
	msgFailed
	msgShowSources
	msgCopyConclusion
	msgNoSources
	msgCopied
	msgExpired
	msgAddUsage
	msgInvalidURL
	msgUnreachable
	msgSiteAdded
	msgRemoveUsage
	msgSiteRemoved
	msgSiteNotFound
	msgSitesReset
	msgSites
	msgSubUsage
	msgSubscribed
	msgUnsubUsage
	msgUnsubscribed
	msgNotSubscribed
	msgNoSubs
	msgSubs
	msgNewResults
	msgUnknown
)

var messages = map[string]map[msgKey]string{
	langEN: {
		msgWelcome: "Hi! I search articles and summarize them.\n\n" +
			"/find <query> - search and summarize\n" +
			"/addsite <url>, /removesite <url>, /resetsites, /sites - manage your sites\n" +
			"/subscribe <query>, /unsubscribe <query>, /subscriptions - daily updates\n\n" +
			"Please select your language:",
		msgLangSet:        "Language set to English.",
		msgFindUsage:      "Please enter a query after the command.\nExample: /find best python frameworks",
		msgSearching:      "⏳ Searching for information, please wait...",
		msgNoLinks:        "Could not find any articles. Try another topic.",
		msgNoContent:      "Could not extract content from the pages.",
		msgFailed:         "Something went wrong. Please try again later.",
		msgShowSources:    "📄 Show all sources",
		msgCopyConclusion: "📋 Copy conclusion",
		msgNoSources:      "Could not find sources for this query.",
		msgCopied:         "📋 Copied:",
		msgExpired:        "Conclusion not found. The cache might have expired.",
		msgAddUsage:       "Please provide a valid site URL after the command.\nExample: /addsite https://example.com",
		msgInvalidURL:     "Invalid URL format. Please provide a valid site URL.",
		msgUnreachable:    "The site %s is not reachable (%v). Please check the URL.",
		msgSiteAdded:      "The site %s has been added successfully! You can now use /find to search it.",
		msgRemoveUsage:    "Please provide the site URL to remove.\nExample: /removesite https://example.com",
		msgSiteRemoved:    "The site %s has been removed.",
		msgSiteNotFound:   "The site %s is not in your list.",
		msgSitesReset:     "Your site list has been reset to the defaults.",
		msgSites:          "Your sites:\n%s",
		msgSubUsage:       "Please provide a query to subscribe. Example: /subscribe Python",
		msgSubscribed:     "You have successfully subscribed to: %s",
		msgUnsubUsage:     "Please provide a query to unsubscribe. Example: /unsubscribe Python",
		msgUnsubscribed:   "You have successfully unsubscribed from: %s",
		msgNotSubscribed:  "You are not subscribed to: %s",
		msgNoSubs:         "You have no active subscriptions.",
		msgSubs:           "Your subscriptions:\n%s",
		msgNewResults:     "New results for",
		msgUnknown:        "Unknown command. Send /help to see what I can do.",
	},
	langUK: {
		msgWelcome: "Привіт! Я шукаю статті та підсумовую їх.\n\n" +
			"/find <запит> - пошук і підсумок\n" +
			"/addsite <url>, /removesite <url>, /resetsites, /sites - керування сайтами\n" +
			"/subscribe <запит>, /unsubscribe <запит>, /subscriptions - щоденні оновлення\n\n" +
			"Будь ласка, оберіть мову:",
		msgLangSet:        "Мова змінена на українську.",
		msgFindUsage:      "Будь ласка, введіть запит після команди.\nНаприклад: /find найкращі python фреймворки",
		msgSearching:      "⏳ Шукаю інформацію, зачекайте...",
		msgNoLinks:        "Не вдалося знайти жодної статті. Спробуйте іншу тему.",
		msgNoContent:      "Не вдалося отримати вміст сторінок.",
		msgFailed:         "Щось пішло не так. Спробуйте пізніше.",
		msgShowSources:    "📄 Показати всі джерела",
		msgCopyConclusion: "📋 Копіювати висновок",
		msgNoSources:      "Не вдалося знайти джерела для цього запиту.",
		msgCopied:         "📋 Скопійовано:",
		msgExpired:        "Висновок не знайдено. Можливо, кеш застарів.",
		msgAddUsage:       "Будь ласка, вкажіть URL сайту після команди.\nНаприклад: /addsite https://example.com",
		msgInvalidURL:     "Неправильний формат URL. Вкажіть коректну адресу сайту.",
		msgUnreachable:    "Сайт %s недоступний (%v). Перевірте адресу.",
		msgSiteAdded:      "Сайт %s успішно додано! Тепер його можна шукати через /find.",
		msgRemoveUsage:    "Будь ласка, вкажіть URL сайту для видалення.\nНаприклад: /removesite https://example.com",
		msgSiteRemoved:    "Сайт %s видалено.",
		msgSiteNotFound:   "Сайту %s немає у вашому списку.",
		msgSitesReset:     "Ваш список сайтів скинуто до типового.",
		msgSites:          "Ваші сайти:\n%s",
		msgSubUsage:       "Будь ласка, вкажіть запит для підписки. Наприклад: /subscribe Python",
		msgSubscribed:     "Ви успішно підписалися на запит: %s",
		msgUnsubUsage:     "Будь ласка, вкажіть запит для відписки. Наприклад: /unsubscribe Python",
		msgUnsubscribed:   "Ви успішно відписалися від запиту: %s",
		msgNotSubscribed:  "Ви не підписані на запит: %s",
		msgNoSubs:         "У вас немає активних підписок.",
		msgSubs:           "Ваші підписки:\n%s",
		msgNewResults:     "Нові результати для",
		msgUnknown:        "Невідома команда. Надішліть /help, щоб побачити можливості.",
	},
}

// text looks up key in lang, falling back to English, and formats args in.
func text(lang string, key msgKey, args ...any) string {
	m, ok := messages[lang]
	if !ok {
		m = messages[langEN]
	}
	s, ok := m[key]
	if !ok {
		s = messages[langEN][key]
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

func supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}
