package local

var (
	TextServerError = NewSet(
		"عذراً، حدث خطأ أثناء الاتصال بالخادم. يرجى المحاولة مرة أخرى.",
		NewTrans(Eng, "Something went wrong while contacting the server. Please try again."),
	)
	TextCredentialsExhausted = NewSet(
		"عذراً، تم تجاوز حد الاستخدام لجميع المفاتيح. يرجى المحاولة لاحقاً.",
		NewTrans(Eng, "Usage limits are exhausted for every key. Try again later."),
	)
	TextStructuredFailed = NewSet(
		"عذراً، لم أتمكن من إعداد خطة البحث. حاول صياغة طلبك بشكل مختلف.",
		NewTrans(Eng, "Sorry, I could not prepare a research plan. Try rephrasing your request."),
	)
	TextImageFailed = NewSet(
		"تعذر إنشاء الصورة: %s",
		NewTrans(Eng, "Could not generate the image: %s"),
	)
	TextResearchRequest = NewSet(
		"نفّذ خطة البحث التالية واكتب تقريراً شاملاً موثقاً بالمصادر:\n%s",
		NewTrans(Eng, "Execute the following research plan and write a thorough, sourced report:\n%s"),
	)
	TextLocationUnavailable = NewSet(
		"تعذر تحديد الموقع. يرجى إدخال المدينة والدولة يدوياً.",
		NewTrans(Eng, "Location unavailable. Please enter your city and country manually."),
	)
	TextSimulationFailed = NewSet(
		"عذراً، تعذر إكمال المحاكاة.",
		NewTrans(Eng, "Sorry, the simulation could not be completed."),
	)
)

var (
	TextTelegramStart = NewSet(
		"أهلاً بك! اكتب رسالتك لبدء المحادثة. استخدم /persona لاختيار الشخصية و /new لبدء محادثة جديدة.",
		NewTrans(Eng, "Welcome! Write something to start a conversation. Use /persona to pick a persona and /new to start over."),
	)
	TextTelegramHelp = NewSet(
		"اكتب رسالتك للمحادثة مع الشخصية الحالية.\n/persona اختيار الشخصية\n/new محادثة جديدة",
		NewTrans(Eng, "Write a message to talk to the current persona.\n/persona pick a persona\n/new start a new chat"),
	)
	TextTelegramNoAccess = NewSet(
		"عذراً، لا تملك صلاحية استخدام هذا البوت.",
		NewTrans(Eng, "You are not allowed to use this bot."),
	)
	TextTelegramUnknownCommand = NewSet(
		"لا أعرف هذا الأمر.",
		NewTrans(Eng, "I don't know that command."),
	)
	TextTelegramNewChat = NewSet(
		"بدأت محادثة جديدة مع %s.",
		NewTrans(Eng, "Started a new chat with %s."),
	)
	TextTelegramSelectPersona = NewSet(
		"اختر الشخصية:",
		NewTrans(Eng, "Choose a persona:"),
	)
	TextTelegramPersonaSelected = NewSet(
		"أنت الآن تتحدث مع %s.",
		NewTrans(Eng, "You are now talking to %s."),
	)
	TextTelegramExecutePlan = NewSet(
		"تنفيذ الخطة",
		NewTrans(Eng, "Execute plan"),
	)
	TextTelegramBusy = NewSet(
		"ما زلت أجيب على رسالتك السابقة، انتظر قليلاً.",
		NewTrans(Eng, "Still answering your previous message, please wait."),
	)
	TextTelegramPlanDone = NewSet(
		"تم تنفيذ هذه الخطة مسبقاً.",
		NewTrans(Eng, "This plan was already executed."),
	)
)
