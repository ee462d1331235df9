package i18n

var english = &table{
	locale: English,
	messages: [keyCount]string{
		KeyUnknownError:        "Something went wrong",
		KeyInvalidArgument:     "The request is invalid{{if .Reason}}: {{.Reason}}{{end}}",
		KeyInvalidRating:       "Rating must be between {{.Min}} and {{.Max}}",
		KeyNotFound:            "Resource not found",
		KeyDuplicateRating:     "You have already rated this book",
		KeyConcurrencyConflict: "The book is being rated by others right now, please try again",
		KeyPersistence:         "The service is temporarily unavailable",
		KeyUnauthorized:        "Missing or invalid authentication information",
		KeyMalformedJSON:       "Malformed JSON payload",
		KeyEmptyBody:           "Request body cannot be empty",
		KeyInvalidField:        "Invalid value for field {{.Field}}",
	},
}

var arabic = &table{
	locale: Arabic,
	messages: [keyCount]string{
		KeyUnknownError:        "حدث خطأ ما",
		KeyInvalidArgument:     "الطلب غير صالح{{if .Reason}}: {{.Reason}}{{end}}",
		KeyInvalidRating:       "يجب أن يكون التقييم بين {{.Min}} و {{.Max}}",
		KeyNotFound:            "العنصر غير موجود",
		KeyDuplicateRating:     "لقد قيّمت هذا الكتاب من قبل",
		KeyConcurrencyConflict: "يتم تقييم الكتاب حالياً، يرجى المحاولة مرة أخرى",
		KeyPersistence:         "الخدمة غير متاحة مؤقتاً",
		KeyUnauthorized:        "بيانات المصادقة مفقودة أو غير صالحة",
		KeyMalformedJSON:       "صيغة JSON غير صحيحة",
		KeyEmptyBody:           "لا يمكن أن يكون نص الطلب فارغاً",
		KeyInvalidField:        "قيمة غير صالحة للحقل {{.Field}}",
	},
}
