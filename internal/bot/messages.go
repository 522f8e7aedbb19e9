package bot

// Replies sent by the controller itself.
const (
	MsgGenericError   = "Désolé, une erreur technique est survenue."
	MsgStaged         = "✅ تم استلام الملف. أرسل %s لتأكيد استبدال البيانات."
	MsgConfirmed      = "✅ تم تحديث البيانات بنجاح (%d سجل)."
	MsgNoPending      = "❌ لا يوجد ملف جديد في الانتظار. أرسل الملف %s أولاً."
	MsgDownloadFailed = "❌ فشل تحميل الملف."
	MsgUploadInvalid  = "❌ الملف غير صالح: يجب أن يحتوي على ورقة %s غير فارغة."
	MsgConfirmFailed  = "❌ فشل تحديث البيانات."
)

// WelcomeMessage is sent to the bot's own chat once the session is ready.
const WelcomeMessage = "*🤖 Votre Bot de Recherche Excel est prêt !*\n\n" +
	"Bonjour ! Je suis un assistant que tout le monde peut utiliser.\n\n" +
	"Voici quelques commandes pour commencer :\n" +
	"• Tapez *!help* pour voir toutes les commandes.\n" +
	"• Essayez *!search مرشد* pour chercher les \"مرشد\".\n\n" +
	"Je suis là pour aider tout le monde !"
