package notification

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-notify/core"
)

var (
	typeTag  = "notiftype"
	typeText = "invalid notification type"

	priorityTag  = "notifpriority"
	priorityText = "invalid notification priority"

	categoryTag  = "notifcategory"
	categoryText = "invalid notification category"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(typeTag, typeValidation)
	core.RegisterCustomTranslation(validate, translator, typeTag, typeText)

	_ = validate.RegisterValidation(priorityTag, priorityValidation)
	core.RegisterCustomTranslation(validate, translator, priorityTag, priorityText)

	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

func typeValidation(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).IsValid()
}

func priorityValidation(fl validator.FieldLevel) bool {
	return Priority(fl.Field().String()).IsValid()
}

func categoryValidation(fl validator.FieldLevel) bool {
	return Category(fl.Field().String()).IsValid()
}
