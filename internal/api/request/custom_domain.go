package request

type AddCustomDomain struct {
	Domain string `json:"domain" validate:"required,max=253,customdomain"`
}
