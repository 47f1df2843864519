package i18n

func init() {
	Register("pt-BR", map[Code]string{
		CodeProfileUserIDRequired:  "O id do usuário é obrigatório.",
		CodeProfileEmailInvalid:    "O e-mail não é válido para uma conta universitária.",
		CodeProfileDomainRequired:  "O domínio da universidade é obrigatório.",
		CodeProfileRoleInvalid:     "O papel do perfil não é reconhecido.",
		CodeProfileSourceInvalid:   "A origem do perfil não é reconhecida.",
		CodeProfileDisplayNameLong: "O nome de exibição é muito longo.",

		CodeRequestRequesterRequired: "O solicitante é obrigatório.",
		CodeRequestMentorRequired:    "O mentor é obrigatório.",
		CodeRequestSelfNotAllowed:    "Você não pode enviar um pedido de mentoria para si mesmo.",
		CodeRequestRoleNotAllowed:    "Seu papel atual não pode criar pedidos de mentoria.",
		CodeRequestAlreadyActive:     "Já existe um pedido de mentoria ativo entre você e {{.mentor}}.",
		CodeRequestInvalidTransition: "Este pedido não pode mudar de {{.from}} para {{.to}}.",
		CodeRequestTerminalState:     "Este pedido já está {{.status}} e não pode mudar.",
		CodeRequestPartyMismatch:     "Somente os participantes deste pedido podem agir sobre ele.",

		CodeFeedbackNotCompleted:  "O feedback só pode ser enviado para mentorias concluídas.",
		CodeFeedbackFieldNotOwned: "Você só pode enviar o seu próprio lado do feedback.",
		CodeFeedbackEmpty:         "O feedback não pode estar vazio.",

		CodeIdentityFetchFailed:  "Não foi possível atualizar seu perfil. Mostrando os últimos dados conhecidos.",
		CodeIdentityNotSignedIn:  "Você não está autenticado.",
		CodeIdentityTokenInvalid: "Sua sessão não é mais válida. Entre novamente.",
		CodeIdentityTokenExpired: "Sua sessão expirou. Entre novamente.",

		CodeChannelNameRequired: "O nome do canal é obrigatório.",
		CodeChannelOpenFailed:   "A conexão em tempo real está indisponível no momento.",

		CodeSyncFrameInvalid:    "O quadro de sincronização não pôde ser lido.",
		CodeSyncPayloadTooLarge: "O conteúdo do quadro de sincronização é muito grande.",
		CodeSyncScopeDenied:     "Você não tem acesso a este canal.",
		CodeSyncRateLimited:     "Muitos quadros de sincronização. Reduza o ritmo e reconecte.",

		CodeNotFound: "O registro solicitado não foi encontrado.",
	})
}
